package planner

import "fmt"

// InsufficientDevicesError reports that no fill ratio allowed every
// operation to be packed within the requested device count. The partial
// partitions tried along the way are discarded, never returned.
type InsufficientDevicesError struct {
	NumDevices    int
	BudgetPerUnit int64
}

func (e *InsufficientDevicesError) Error() string {
	return fmt.Sprintf("operations do not fit on %d device(s) with %d bytes per resource unit; try more devices",
		e.NumDevices, e.BudgetPerUnit)
}
