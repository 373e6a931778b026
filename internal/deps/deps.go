package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external program a capability or conversion backend
// shells out to. Command may carry arguments ("python3 -m rembg"); only the
// first field is resolved.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of resolving one Requirement.
type Status struct {
	Requirement
	Available bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// Executable returns the program portion of a configured command line.
func Executable(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Resolve looks up a single requirement.
func Resolve(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}

	program := Executable(req.Command)
	if program == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(program)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", program)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries resolves every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Resolve(req))
	}
	return results
}

// MissingRequired returns the names of non-optional requirements that did not
// resolve.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
