package config

type WorkerKeyStruct struct {
	PersistStatisticsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistStatisticsQueue: "persist_statistics_queue",
}
