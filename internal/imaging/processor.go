package imaging

// Processor adapts the package functions to the interface the pipeline
// injects, so tests can substitute a fake.
type Processor struct{}

func (Processor) Preprocess(data []byte) ([]byte, error) {
	return Preprocess(data)
}

func (Processor) Thumbnail(data []byte) (string, error) {
	return Thumbnail(data)
}
