// pkg/classify/types.go
package classify

// Classification is the PII category assigned to a column
type Classification string

const (
	ClassificationPersonName        Classification = "PersonName"
	ClassificationPersonAddress     Classification = "PersonAddress"
	ClassificationPersonPhoneNumber Classification = "PersonPhoneNumber"
	ClassificationSSN               Classification = "SSN"
	ClassificationPersonEmail       Classification = "PersonEmail"
	ClassificationIPAddress         Classification = "IPAddress"
)

// ConfidenceScore is the model's confidence in a classification
type ConfidenceScore string

const (
	ConfidenceHigh   ConfidenceScore = "High"
	ConfidenceMedium ConfidenceScore = "Medium"
	ConfidenceLow    ConfidenceScore = "Low"
)

// Classifications lists every valid PII category
var Classifications = []Classification{
	ClassificationPersonName,
	ClassificationPersonAddress,
	ClassificationPersonPhoneNumber,
	ClassificationSSN,
	ClassificationPersonEmail,
	ClassificationIPAddress,
}

// ConfidenceScores lists every valid confidence level
var ConfidenceScores = []ConfidenceScore{
	ConfidenceHigh,
	ConfidenceMedium,
	ConfidenceLow,
}

// Valid reports whether the classification is a known PII category
func (c Classification) Valid() bool {
	for _, known := range Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// Valid reports whether the confidence score is a known level
func (s ConfidenceScore) Valid() bool {
	for _, known := range ConfidenceScores {
		if s == known {
			return true
		}
	}
	return false
}

// Finding is one column classification returned by the model
type Finding struct {
	ColumnName      string          `json:"columnName"`
	TableName       string          `json:"tableName"`
	DatasetID       string          `json:"datasetId"`
	Classification  Classification  `json:"classification"`
	ConfidenceScore ConfidenceScore `json:"confidenceScore"`
}
