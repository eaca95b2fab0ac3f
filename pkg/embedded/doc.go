// Package embedded runs a DittoFS subsystem inside a host process.
//
// A Controller owns the lifecycle of one subsystem instance. Start and Stop
// are each scheduled at most once and return a shared *Outcome that every
// caller can wait on:
//
//	ctrl, err := embedded.New(embedded.Options{Builder: subsystem.NewBuilder()})
//	if err != nil {
//		return err
//	}
//	if err := ctrl.Start().Wait(ctx); err != nil {
//		return err
//	}
//	defer ctrl.Stop().Wait(context.Background())
//
// Read an Outcome with Wait or by receiving from Done. Err returns nil both
// while pending and after success, so it is only meaningful once Resolved
// reports true.
//
// Bootstrapping happens in two phases. The persistence sub-context is built
// first and must report readiness before the full subsystem is built on top
// of it. Shutdown runs the cleanup actions registered by the subsystem in
// registration order; a failing action never prevents later ones from running.
package embedded
