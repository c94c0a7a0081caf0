/*
Package health implements the session health monitor (C6): a set of
per-status keepers, each watching one transitional session status for signs
that the work an agent is doing on its behalf (pulling an image, creating a
kernel) has stalled.

Monitor dispatches by status to the registered Keeper, pulling the batch for
that status straight from SchedulerRepository.GetSessionsByStatus on its own
tick, independent of the scheduling coordinator's per-scaling-group rounds.

Keeper is a five-method interface (Name, NeedCheck, CheckBatch,
RetryUnhealthy, HandleBatch); HandleBatch is the template method every
keeper gets for free by embedding Base, composing NeedCheck, CheckBatch and
RetryUnhealthy the same way for every keeper: filter by age threshold,
probe agents, retry anything unhealthy.
*/
package health
