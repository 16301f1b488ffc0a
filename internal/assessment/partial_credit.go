package assessment

// fourPartCredit is indexed by the number of correct statements out of four.
// It is a fixed table, not a formula: the first miss costs half the points.
var fourPartCredit = [5]float64{0.0, 0.10, 0.25, 0.5, 1.0}

// PartialCredit returns the multiplier for a multi-part true/false question
// with n statements of which correct were answered correctly.
func PartialCredit(n, correct int) float64 {
	if n <= 0 {
		return 0
	}
	correct = clamp(correct, 0, n)
	if n == 4 {
		return fourPartCredit[correct]
	}
	return float64(correct) / float64(n)
}
