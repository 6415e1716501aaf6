package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/nerrad567/rpigarage/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves connectTimeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// alpnPort is the port on which AWS IoT expects MQTT to be negotiated
	// through ALPN rather than on the dedicated 8883 listener.
	alpnPort = 443

	// alpnProtocol is the ALPN protocol name AWS IoT uses for MQTT over 443.
	alpnProtocol = "x-amzn-mqtt-ca"
)

// Availability states published on the status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// buildTLSConfig loads the device identity and the broker trust anchor.
//
// Parameters:
//   - certPath: PEM device certificate issued by AWS IoT
//   - keyPath: PEM private key matching the certificate
//   - caPath: PEM root CA used to verify the broker (e.g. AmazonRootCA1.pem)
//
// Returns:
//   - *tls.Config: Client configuration presenting the device certificate
//   - error: ErrTLSConfig wrapping the underlying failure
func buildTLSConfig(certPath, keyPath, caPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: loading device certificate: %w", ErrTLSConfig, err)
	}

	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading root CA: %w", ErrTLSConfig, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: no certificates found in %s", ErrTLSConfig, caPath)
	}

	return &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}

// buildClientOptions creates paho MQTT options from the device config.
//
// This configures:
//   - Broker URL (ssl:// or tcp:// based on the TLS setting)
//   - Client ID ("<prefix>-<id>")
//   - Keepalive and session persistence
//   - Auto-reconnect with exponential backoff after the first connection
//   - TLS configuration (if tlsConfig is non-nil)
//
// The initial connection is not retried: a handshake failure at startup is
// reported to the caller.
func buildClientOptions(cfg *config.Config, tlsConfig *tls.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if tlsConfig != nil {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Endpoint, cfg.MQTT.Port))

	opts.SetClientID(cfg.ClientID())

	opts.SetCleanSession(cfg.MQTT.CleanSession)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.MQTT.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(cfg.MQTT.Reconnect.MaxDelay)
	}

	connectTimeout := cfg.MQTT.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	if cfg.MQTT.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.MQTT.KeepAlive)
	}

	if tlsConfig != nil {
		if cfg.MQTT.Port == alpnPort {
			tlsConfig.NextProtos = []string{alpnProtocol}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// statusPayload is published on the availability topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// buildStatusPayload renders an availability message.
func buildStatusPayload(status, clientID, reason string) []byte {
	payload, err := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// statusPayload contains only strings.
		return []byte(`{"status":"` + status + `"}`)
	}
	return payload
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the client disconnects
// unexpectedly (crash, power loss, network failure).
//
// QoS: 1, Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	if topic == "" {
		return
	}
	opts.SetBinaryWill(topic, buildStatusPayload(statusOffline, clientID, "unexpected_disconnect"), 1, true)
}
