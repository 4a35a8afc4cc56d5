package handlers

// validateBookingRequest performs the structural checks on a
// submission before it reaches the ledger. Returns an empty string
// when the request is acceptable.
func validateBookingRequest(req *bookingRequest) string {
	if req.Cohort == "" {
		return "cohort is required"
	}
	if req.EmployeeID == "" {
		return "employee_id is required"
	}
	if len(req.Selections) == 0 {
		return "At least one shift selection is required"
	}

	seen := make(map[string]bool, len(req.Selections))
	for _, sel := range req.Selections {
		if sel.Location == "" || sel.Date == "" || sel.ShiftType == "" {
			return "Each selection needs location, date and shift_type"
		}
		key := sel.Location + "|" + sel.Date + "|" + sel.ShiftType
		if seen[key] {
			return "Duplicate shift selection: " + key
		}
		seen[key] = true
	}
	return ""
}
