package audio

// Band is one equalizer band. Band ranges 0-14, Gain -0.25 to 1.0.
type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}
