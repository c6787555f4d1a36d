// Package tourguide is an embeddable guided-tour engine for web products.
//
// A tour is an ordered list of steps, each optionally anchored to a DOM
// element by a CSS selector. The engine drives a live page: it waits for
// target elements, runs per-step action pipelines (clicks, inputs, scrolls,
// highlights, redirects), renders the overlay, resolves branch points, and
// records per-client progress.
//
// # Core Concepts
//
//  1. Engine
//  2. Page
//  3. TourBuilder
//  4. Widget
//  5. Observer
//
// # Engine
//
// The Engine runs one tour for one (client, configuration) pair. It exposes
// the progression commands (Start, Complete, Skip, Advance, GoTo, Reset),
// pause/resume, branch signals, and progress queries. Every progression
// command persists progress through the configured stores before advancing,
// so a reload resumes exactly where the client left off.
//
// Progress can be kept:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded local cache)
//   - On a remote tour service, synced in the background
//
// # Page
//
// A Page is the document a tour runs against. The production implementation
// drives a Chrome tab over the DevTools protocol; an in-memory implementation
// backs tests and the authoring scanner. The engine only ever talks to the
// Page interface, so everything above it is testable without a browser.
//
// # TourBuilder
//
// TourBuilder provides the declarative API used to define tours in code:
//
//	cfg, err := tourguide.NewBuilder("onboarding", "Onboarding").
//	    ModalStep("welcome", "Welcome!", "Let us show you around.").
//	    PageStep("open-menu", "Open the menu", "#menu").
//	    Required().
//	    PageStep("pick-plan", "Pick a plan", "#plans").
//	    Build()
//
// Definitions can also be loaded from YAML (see LoadConfigurationYAML) or
// fetched from the remote service.
//
// # Widget
//
// Widget bundles everything one embed needs: it fetches the configuration,
// creates the engine and overlay for a page, keeps progress synced to the
// remote service with debounced background pushes, and pauses the tour when
// the page navigates off the allowed routes.
//
// # Observer
//
// Observers receive engine callbacks (step changes, action errors, branch
// resolutions, completion) for logging and metrics. LoggingObserver and
// BasicMetrics are provided; NewCompositeObserver fans out to several with
// panic isolation.
//
// For examples, see the /examples directory.
package tourguide
