// Package jobs tracks scan job lifecycles.
//
// The registry is the single writer for job state: jobs are created in
// pending, advanced through legal lifecycle transitions, and handed out
// to callers only as deep copies. Every accepted mutation is snapshotted
// to a persistent store so that job history survives process restarts.
package jobs
