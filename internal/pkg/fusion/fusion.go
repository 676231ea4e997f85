package fusion

import (
	"github.com/moodsense/moody/internal/pkg/classifier/api"
	"github.com/moodsense/moody/internal/pkg/persistence"
)

const topSoundCount = 5

// Fuse merges ranked outputs of the sound and the emotion model into the
// stored scores payload. The combination is structural: top-5 sound classes
// and the top emotion pass through unmodified, no reweighting happens here.
func Fuse(sound, emotion []api.Result) *persistence.Scores {
	res := &persistence.Scores{
		SoundClassification: "Unknown",
		YamnetTopClasses:    []persistence.TopClass{},
		Emotion:             "neutral",
	}
	for i, r := range sound {
		if i >= topSoundCount {
			break
		}
		res.YamnetTopClasses = append(res.YamnetTopClasses, persistence.TopClass{Class: r.Label, Score: r.Score})
	}
	if len(sound) > 0 {
		res.SoundClassification = sound[0].Label
		res.YamnetConfidence = sound[0].Score
	}
	if len(emotion) > 0 {
		res.Emotion = emotion[0].Label
		res.EmotionScore = emotion[0].Score
	}
	return res
}
