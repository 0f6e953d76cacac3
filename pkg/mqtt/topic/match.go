package topic

import "strings"

const (
	// Wildcard matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must end the filter.
	MultiWildcard = "#"

	separator = "/"
)

// Match reports whether topic is selected by filter.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, Wildcard+MultiWildcard) {
		return false
	}

	filterParts := strings.Split(filter, separator)
	topicParts := strings.Split(topic, separator)

	for i, part := range filterParts {
		if part == MultiWildcard {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != Wildcard && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
