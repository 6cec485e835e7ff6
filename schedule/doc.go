// Package schedule turns cron schedules into run requests.
//
// A Definition binds a pipeline to a cron expression evaluated in an IANA
// timezone. Engine.Ticks lists the tick boundaries in a window; it is a pure
// function of the definition and the window. Engine.Evaluate consults a
// History of fired ticks, applies the catch-up policy to any backlog and
// returns RunRequests whose RunKey is derived from the schedule name and
// tick time, so the same tick always maps to the same key.
package schedule
