// Package pipeline sequences one subtitle job from source video to published
// artifacts.
//
// The Orchestrator walks a job through extracting, transcribing, translating,
// formatting, muxing and publishing inside a workspace directory named by the
// job id under the staging root. Progress is reported to an Observer as a
// non-decreasing percentage with a stage label; regressions are dropped
// before they reach observers. Every failure is classified with a
// services.Kind and goes through one cleanup path that deletes the workspace
// and anything already published.
//
// Runtime owns the lifecycle of the engines the orchestrator depends on: they
// are built on the first Acquire and released by Shutdown.
package pipeline
