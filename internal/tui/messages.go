package tui

// workDoneMsg reports that the sync work function returned.
type workDoneMsg struct {
	err error
}

// dismissFunc removes a finished row on user request.
type dismissFunc func(accountID string)
