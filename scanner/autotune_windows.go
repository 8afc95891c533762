package scanner

func detectDiskType() string {
	return "unknown"
}
