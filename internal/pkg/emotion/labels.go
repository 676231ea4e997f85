package emotion

// Labels is the RAVDESS vocabulary served by the emotion model
var Labels = []string{"neutral", "calm", "happy", "sad", "angry", "fearful", "surprise", "disgust"}

var labelIndex = initIndex()

func initIndex() map[string]int {
	res := make(map[string]int, len(Labels))
	for i, l := range Labels {
		res[l] = i
	}
	return res
}

// Known returns true if the label belongs to the vocabulary
func Known(label string) bool {
	_, ok := labelIndex[label]
	return ok
}

// Index returns label position in the vocabulary, -1 if unknown
func Index(label string) int {
	if i, ok := labelIndex[label]; ok {
		return i
	}
	return -1
}
