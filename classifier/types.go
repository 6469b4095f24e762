package classifier

// LabelSet is the ordered list of labels a model can emit. The position of a
// label matches the position of its logit in the model output.
type LabelSet []string

// Index returns the position of label within the set, or -1.
func (ls LabelSet) Index(label string) int {
	for i, l := range ls {
		if l == label {
			return i
		}
	}
	return -1
}

// Prediction is the outcome for a single text: the winning label and its
// softmax probability.
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Config aggregates runtime settings shared by both classifier types.
type Config struct {
	OrtLibrary       string `json:"ortLibrary"`
	DomainModelPath  string `json:"domainModelPath"`
	QualityModelPath string `json:"qualityModelPath"`
	TokenizerPath    string `json:"tokenizerPath"`
	MaxSeqLen        int    `json:"maxSeqLen"`
	BatchSize        int    `json:"batchSize"`
	CacheDir         string `json:"cacheDir"`
	ModelID          string `json:"modelId"`
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxSeqLen == 0 {
		c.MaxSeqLen = 512
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
}

// Recognized classifier type names.
const (
	TypeDomain  = "domain"
	TypeQuality = "quality"
)

// Prediction column names added to classified records.
const (
	DomainColumn  = "domain_pred"
	QualityColumn = "quality_pred"
)

// DomainLabels returns the topical taxonomy emitted by the domain model.
func DomainLabels() LabelSet {
	return LabelSet{
		"Adult",
		"Arts_and_Entertainment",
		"Autos_and_Vehicles",
		"Beauty_and_Fitness",
		"Books_and_Literature",
		"Business_and_Industrial",
		"Computers_and_Electronics",
		"Finance",
		"Food_and_Drink",
		"Games",
		"Health",
		"Hobbies_and_Leisure",
		"Home_and_Garden",
		"Internet_and_Telecom",
		"Jobs_and_Education",
		"Law_and_Government",
		"News",
		"Online_Communities",
		"People_and_Society",
		"Pets_and_Animals",
		"Real_Estate",
		"Science",
		"Sensitive_Subjects",
		"Shopping",
		"Sports",
		"Travel_and_Transportation",
	}
}

// QualityLabels returns the quality tiers emitted by the quality model.
func QualityLabels() LabelSet {
	return LabelSet{"High", "Medium", "Low"}
}
