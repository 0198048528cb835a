package cfg

type Cfg struct {
	// Storage configuration
	DataDir      string
	SourcesDir   string
	ArchiveWeeks int

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	RunOnce           bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
