// Package monit installs the monit process supervisor and reconciles the
// state of the services it watches through its command line interface.
//
// The supervisor has no machine-readable API and its commands are
// asynchronous, so every command goes through a Runner that retries it under
// a bounded budget until a caller-supplied predicate is satisfied:
//
//	inst := monit.NewInstance("monit", monit.WithBinary("/opt/monit-5.17.1/bin/monit"))
//	svc := inst.Service("myapp", monit.WithConfigPath(inst.FragmentPath("myapp")))
//
//	// Monitor the service unless the supervisor already does
//	changed, err := svc.Enable(context.Background())
//
//	// Read the current state
//	st, err := svc.Current(context.Background(), monit.ActionNothing)
//	fmt.Printf("enabled=%v running=%v\n", st.Enabled, st.Running)
//
// # Installing the Supervisor
//
// Resolve picks an install strategy for the host. Under ProviderAuto the
// strategies are tried in a fixed order: the test stub, the two static
// archive sources, then the OS package. The returned Strategy carries the
// binary path; NewInstaller performs the side effects.
//
//	facts, err := monit.DetectFacts()
//	strategy, err := monit.Resolve(facts, monit.ResolveOptions{Provider: monit.ProviderAuto})
//	err = monit.NewInstaller(strategy).Install(ctx)
//
// # Config Files
//
// WriteConfig and WriteFragment stage content next to the destination, run
// `monit -t` against the staged file and only then rename it into place. A
// rejected config leaves the previous file untouched. RenderConfig produces a
// main config from the instance settings when the caller has none.
//
// # Applying Many Steps
//
// The Applier runs (service, action) steps strictly in order. Reconciliations
// against one instance must never run in parallel because they share the
// config tree and the daemon's control socket.
package monit
