package banksync

import "fmt"

func phaseMessage(p Phase) string {
	switch p {
	case PhaseConnecting:
		return "Connecting to bank"
	case PhaseFetching:
		return "Fetching transactions"
	case PhaseSyncing:
		return "Syncing transactions"
	case PhaseProcessing:
		return "Processing transactions"
	default:
		return ""
	}
}

func completeMessage(count int) string {
	if count == 1 {
		return "Synced 1 transaction"
	}
	return fmt.Sprintf("Synced %d transactions", count)
}
