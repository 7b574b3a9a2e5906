package domain

import "time"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_TELEMETRY    = "telemetry"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_LOAD_CONTROL = "load_control"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetTelemetryRequest struct {
	ActorRequestMixIn
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	Snapshot     *TelemetrySnapshot
	ReadDuration time.Duration
}

type GetTelemetryInfoRequest struct {
	ActorRequestMixIn
}

type GetTelemetryInfoResponse struct {
	ActorResponseMixIn
	Info *TelemetryInfo
}

type GetGridSourceRequest struct {
	ActorRequestMixIn
}

type GetGridSourceResponse struct {
	ActorResponseMixIn
	Path  string
	Value any
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
	Timeout time.Duration
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

type GetControllerStatusRequest struct {
	ActorRequestMixIn
}

type GetControllerStatusResponse struct {
	ActorResponseMixIn
	Status ControllerStatus
}
