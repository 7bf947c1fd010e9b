package pipeline

import "fmt"

const MaxSalesFiles = 12

// FileInput is one raw CSV byte stream as submitted by the operator.
// Name is the bare filename; it drives diagnostics and output naming.
type FileInput struct {
	Name string
	Data []byte
}

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validateSalesFiles(files []FileInput) error {
	if len(files) == 0 {
		return &ValidationError{Msg: "no sales files provided"}
	}
	if len(files) > MaxSalesFiles {
		return &ValidationError{Msg: fmt.Sprintf("too many sales files: %d (max %d)", len(files), MaxSalesFiles)}
	}
	return nil
}

func requireFile(f FileInput, role string) error {
	if f.Name == "" && len(f.Data) == 0 {
		return &ValidationError{Msg: fmt.Sprintf("%s file is required", role)}
	}
	return nil
}
