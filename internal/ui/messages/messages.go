package messages

import "time"

// OutputMsg sygnalizuje nowe bajty w buforze terminala
type OutputMsg struct{}

// TranscriptMsg to linia do dopisania w transkrypcie
type TranscriptMsg string

// PhaseMsg niesie nowy etap sesji jako tekst statusu
type PhaseMsg string

// ConnectFinishedMsg kończy próbę połączenia
type ConnectFinishedMsg struct {
	Err error
}

// SessionClosedMsg oznacza naturalny koniec sesji
type SessionClosedMsg struct {
	Err error
}

// TransferFinishedMsg kończy operację fetch/push
type TransferFinishedMsg struct {
	Desc string
	Err  error
}

// WifiFinishedMsg kończy próbę dołączenia do sieci
type WifiFinishedMsg struct {
	Network string
	Err     error
}

type FlushTickMsg time.Time
type SaveTickMsg time.Time
