// Package agent is the application-facing entry point of the device agent.
//
// It wires configuration, persistence, network association, registration,
// the messaging session, command dispatch, telemetry and the diagnostics
// server into one lifecycle loop:
//
//	a, err := agent.New(ctx, cfg, agent.Options{Version: version})
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	a.AddAttribute(registration.Attribute{Key: "temp", DisplayName: "Temperature", Unit: "C"})
//	a.OnAction(func(act dispatch.Action) { ... })
//	a.OnPeriodicUpdate(func() { a.SendData(readSensors()) })
//
//	err = a.Run(ctx) // lifecycle.ErrRestartRequested asks the supervisor to restart
//
// Callbacks run on the loop goroutine and must return promptly.
package agent
