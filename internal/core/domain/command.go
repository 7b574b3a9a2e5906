package domain

import "fmt"

// LoadControlRequest

type LoadControlRequest interface {
	ActorRequest
	LoadControlCommand() string
}

type LoadControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r LoadControlRequestMixIn) LoadControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// LoadControlResponse

type LoadControlResponse interface {
	ActorResponse
	LoadControlResponse() string
}

type LoadControlResponseMixIn struct {
	ActorResponseMixIn
}

func (r LoadControlResponseMixIn) LoadControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// LoadControl commands

type LoadControlEnableRequest struct {
	LoadControlRequestMixIn
	Enable bool
}

type LoadControlEnableResponse struct {
	LoadControlResponseMixIn
	Changed bool
}

// ensure interface compliance
var _ LoadControlRequest = (*LoadControlEnableRequest)(nil)
var _ LoadControlResponse = (*LoadControlEnableResponse)(nil)
