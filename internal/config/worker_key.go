package config

type WorkerKeyStruct struct {
	SnapshotWriter string
}

var WorkerKey = &WorkerKeyStruct{
	SnapshotWriter: "snapshot_writer",
}
