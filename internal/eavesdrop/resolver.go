// Package eavesdrop selects the origination target for a manager tapping an
// active call, based on where the subject and the tapper are registered.
package eavesdrop

import (
	"errors"
	"fmt"

	"github.com/callwatch/callwatch/internal/directory"
)

// ErrNoRegistrationServer is returned when the subject agent has no known
// registration server; a tap cannot be routed without one.
var ErrNoRegistrationServer = errors.New("subject agent has no registration server")

// Origination describes an unexecuted originate command. It is always issued
// against the subject's registration server, where the tapped call lives.
type Origination struct {
	Server   string // registration server to issue the command on
	Target   string // dial target for the listening leg
	Endpoint string // application endpoint, the eavesdrop directive
}

// Resolve picks how to originate the listening leg for targetCallUUID.
// Authorization is the caller's problem; resolution assumes the tapper has
// already been verified as a manager. First match wins:
//
//  1. The tapper has a dedicated eavesdrop extension: ring it.
//  2. Tapper and subject register against the same server: ring the
//     tapper's own extension locally.
//  3. Otherwise route to the tapper's extension through an explicit
//     internal SIP address naming the tapper's registration server.
func Resolve(targetCallUUID string, subject, tapper *directory.Identity) (Origination, error) {
	if subject.RegistrationServer == "" {
		return Origination{}, ErrNoRegistrationServer
	}

	org := Origination{
		Server:   subject.RegistrationServer,
		Endpoint: fmt.Sprintf("&eavesdrop(%s)", targetCallUUID),
	}

	switch {
	case tapper.EavesdropExtension != "":
		org.Target = tapper.EavesdropExtension
	case tapper.RegistrationServer == subject.RegistrationServer:
		org.Target = fmt.Sprintf("user/%s", tapper.Extension)
	default:
		org.Target = fmt.Sprintf("sofia/internal/%s@%s", tapper.Extension, tapper.RegistrationServer)
	}

	return org, nil
}
