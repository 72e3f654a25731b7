// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package harness implements a test fixture for an editor's UI tests.
//
// Each Fixture owns an explicit environment ([Env]): an event loop, a
// signal-wait helper, a logger, and temporary directories. The application
// under test is built from that environment by a [Backend], so fixtures share
// no process-wide state, and may run in parallel (unless [Config.Chdir] is
// set).
//
// The toolkit is only ever touched on the loop goroutine. Fixture methods may
// be called from the test goroutine, and marshal their work onto the loop.
//
//	func TestOpenSettings(t *testing.T) {
//	    f := harness.New(t, &harness.Config{Backend: newBackend()})
//	    err := f.OpenSettings(func(dialog harness.Widget) error {
//	        return f.KeyClick(`Enter`)
//	    })
//	    require.NoError(t, err)
//	}
package harness
