package persistence

import (
	"database/sql"
	"time"
)

type (

	//Job table - one requested audio analysis with its lifecycle state
	Job struct {
		ID         string
		UserIDSHA  string
		UploadID   string
		Status     string
		Created    time.Time
		StartedAt  sql.NullTime
		FinishedAt sql.NullTime
		Error      sql.NullString
	}

	//Upload table - stored audio file a job refers to, immutable once referenced
	Upload struct {
		ID            string
		UserIDSHA     string
		AudioFilePath string
		Created       time.Time
	}

	//Prediction table - fused classification output for a completed job
	Prediction struct {
		ID            string
		UserIDSHA     string
		UploadID      string
		Scores        Scores
		ModelVersion  string
		ModelName     string
		InferenceTime float64
		Created       time.Time
	}

	//Scores is the fused payload, stored as jsonb
	Scores struct {
		SoundClassification string     `json:"sound_classification"`
		YamnetTopClasses    []TopClass `json:"yamnet_top_classes"`
		YamnetConfidence    float64    `json:"yamnet_confidence"`
		Emotion             string     `json:"emotion"`
		EmotionScore        float64    `json:"emotion_score"`
	}

	//TopClass is one ranked sound class entry
	TopClass struct {
		Class string  `json:"class"`
		Score float64 `json:"score"`
	}
)
