package tasks

// TaskSchedulerInterface is the surface the main application and the
// HTTP API use to drive background work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
