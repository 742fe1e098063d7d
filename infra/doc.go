// Package infra contains technical adapters: hospital stores, the
// geocoder, alert channels, MQTT and metrics exporters. These packages
// depend only on the interfaces defined in the core packages.
package infra
