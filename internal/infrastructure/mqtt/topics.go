package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for topics owned by Gray Logic Sensor services.
// Device telemetry topics are configured per deployment and need not use it.
const TopicPrefix = "glsensor"

// Topics provides builders for Gray Logic Sensor MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.CollectorStatus("glsensor-collector")
//	// Returns: "glsensor/collector/glsensor-collector/status"
type Topics struct{}

// CollectorStatus returns the retained online/offline topic of a collector.
//
// Example: glsensor/collector/glsensor-collector/status
func (Topics) CollectorStatus(clientID string) string {
	return fmt.Sprintf("%s/collector/%s/status", TopicPrefix, clientID)
}

// ValidateFilter checks a subscription filter against the MQTT wildcard
// rules: "+" must occupy a whole level and "#" must be the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: '#' must be the whole last level", ErrInvalidFilter, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q: '+' must be a whole level", ErrInvalidFilter, filter)
		}
	}
	return nil
}
