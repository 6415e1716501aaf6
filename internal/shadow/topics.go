package shadow

import "fmt"

// topicPrefix is the reserved AWS IoT namespace for named things.
const topicPrefix = "$aws/things"

// Topics provides builders for the classic (unnamed) shadow topics.
//
//	topics := shadow.Topics{}
//	topics.Update("GarageDoor")
//	// Returns: "$aws/things/GarageDoor/shadow/update"
type Topics struct{}

// Update returns the topic devices publish state updates to.
func (Topics) Update(thing string) string {
	return fmt.Sprintf("%s/%s/shadow/update", topicPrefix, thing)
}

// UpdateAccepted returns the topic carrying every accepted update.
func (Topics) UpdateAccepted(thing string) string {
	return fmt.Sprintf("%s/%s/shadow/update/accepted", topicPrefix, thing)
}

// UpdateRejected returns the topic carrying rejected updates.
func (Topics) UpdateRejected(thing string) string {
	return fmt.Sprintf("%s/%s/shadow/update/rejected", topicPrefix, thing)
}
