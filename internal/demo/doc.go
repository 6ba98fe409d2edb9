// Package demo provides sample event types and drivers that exercise the
// event bus end to end.
//
// Two event types are defined: Window, the state of an application window,
// and FrameTiming, per-frame performance numbers. Buses bundles one bus per
// type with every member registered. RunScenario walks through each bus
// operation once and reports what the subscribers observed; Driver publishes
// a steady stream of frames for the long-running service.
package demo
