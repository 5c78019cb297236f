package tagger

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kart-io/budgetqa/internal/model"
)

// Entry 一个类别及其关键词，关键词按小写子串匹配。
type Entry struct {
	Key      string   `yaml:"key"`
	Keywords []string `yaml:"keywords"`
}

// Dictionaries 标注使用的全部词典。各列表有序，匹配结果按列表顺序输出。
type Dictionaries struct {
	Topics       []Entry                `yaml:"topics"`
	UserTypes    []Entry                `yaml:"user_types"`
	Sectors      []Entry                `yaml:"sectors"`
	IncomeRanges []Entry                `yaml:"income_ranges"`
	Hierarchy    map[string]model.Topic `yaml:"hierarchy"`
}

// Validate 校验词典，收入区间只能取规范化取值。
func (d *Dictionaries) Validate() error {
	var errs []error
	families := map[string][]Entry{
		"topics":        d.Topics,
		"user_types":    d.UserTypes,
		"sectors":       d.Sectors,
		"income_ranges": d.IncomeRanges,
	}
	for name, entries := range families {
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if e.Key == "" {
				errs = append(errs, fmt.Errorf("%s: empty category key", name))
				continue
			}
			if _, dup := seen[e.Key]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate category %q", name, e.Key))
			}
			seen[e.Key] = struct{}{}
			if len(e.Keywords) == 0 {
				errs = append(errs, fmt.Errorf("%s: category %q has no keywords", name, e.Key))
			}
		}
	}
	for _, e := range d.IncomeRanges {
		if !model.IsIncomeRange(e.Key) {
			errs = append(errs, fmt.Errorf("income_ranges: %q is not one of %v", e.Key, model.IncomeRanges))
		}
	}
	return errors.Join(errs...)
}

// LoadDictionaries 从 YAML 文件加载词典。文件中缺省的词典族沿用默认值。
func LoadDictionaries(path string) (*Dictionaries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary file: %w", err)
	}

	var file Dictionaries
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dictionary file %s: %w", path, err)
	}

	d := DefaultDictionaries()
	if file.Topics != nil {
		d.Topics = file.Topics
	}
	if file.UserTypes != nil {
		d.UserTypes = file.UserTypes
	}
	if file.Sectors != nil {
		d.Sectors = file.Sectors
	}
	if file.IncomeRanges != nil {
		d.IncomeRanges = file.IncomeRanges
	}
	for k, v := range file.Hierarchy {
		d.Hierarchy[k] = v
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dictionary file %s: %w", path, err)
	}
	return d, nil
}

// DefaultDictionaries 返回内置的预算领域词典。
func DefaultDictionaries() *Dictionaries {
	return &Dictionaries{
		Topics: []Entry{
			{"tax", []string{"tax", "taxation", "income tax", "gst", "customs", "excise", "duty", "cess",
				"surcharge", "rebate", "deduction", "exemption", "section 80", "tds", "tcs"}},
			{"healthcare", []string{"health", "medical", "hospital", "ayushman", "medicine", "doctor",
				"treatment", "insurance", "wellness", "disease", "vaccine"}},
			{"education", []string{"education", "school", "university", "student", "scholarship", "learning",
				"skill", "training", "research", "academic"}},
			{"defense", []string{"defense", "defence", "military", "army", "navy", "air force", "security",
				"border", "weapon", "soldier"}},
			{"agriculture", []string{"agriculture", "farmer", "crop", "farming", "irrigation", "fertilizer",
				"seed", "rural", "kisan", "mandi", "minimum support price", "msp"}},
			{"infrastructure", []string{"infrastructure", "road", "highway", "railway", "metro", "airport",
				"port", "bridge", "construction", "urban development"}},
			{"employment", []string{"employment", "job", "unemployment", "wage", "salary", "epf", "provident fund",
				"pension", "retirement", "employee"}},
			{"finance", []string{"finance", "banking", "loan", "credit", "debt", "fiscal", "monetary",
				"reserve bank", "rbi", "interest rate"}},
			{"social_welfare", []string{"welfare", "subsidy", "scheme", "benefit", "allowance", "pension",
				"poverty", "below poverty line", "bpl"}},
			{"energy", []string{"energy", "power", "electricity", "renewable", "solar", "coal", "oil",
				"petroleum", "gas", "fuel"}},
			{"digital", []string{"digital", "technology", "it", "software", "cyber", "internet", "online",
				"e-governance", "digital india"}},
			{"msme", []string{"msme", "small business", "medium enterprise", "startup", "entrepreneur",
				"mudra", "sidbi"}},
		},
		UserTypes: []Entry{
			{"salaried", []string{"salary", "salaried", "employee", "employer", "wage", "profession",
				"professional", "employment", "tds"}},
			{"business", []string{"business", "trader", "entrepreneur", "proprietor", "partnership",
				"company", "firm", "gst", "turnover"}},
			{"senior_citizen", []string{"senior citizen", "senior", "aged", "elderly", "pension",
				"60 years", "80 years"}},
			{"student", []string{"student", "education", "scholarship", "fee", "tuition", "school",
				"college", "university"}},
			{"farmer", []string{"farmer", "agriculture", "agricultural income", "crop", "kisan"}},
			{"woman", []string{"woman", "women", "female", "maternity", "maternal", "girl child",
				"beti bachao"}},
			{"disabled", []string{"disabled", "disability", "handicapped", "differently abled", "pwd"}},
			{"nri", []string{"nri", "non-resident", "foreign", "overseas", "expatriate"}},
		},
		Sectors: []Entry{
			{"it", []string{"information technology", "software", "it", "tech", "computer", "digital"}},
			{"manufacturing", []string{"manufacturing", "industry", "factory", "production", "make in india"}},
			{"services", []string{"service", "services", "hospitality", "tourism", "consulting"}},
			{"agriculture", []string{"agriculture", "farming", "agri", "crop", "livestock"}},
			{"healthcare", []string{"healthcare", "medical", "pharmaceutical", "hospital", "clinical"}},
			{"education", []string{"education", "educational", "school", "coaching", "training"}},
			{"real_estate", []string{"real estate", "property", "housing", "construction", "builder"}},
			{"finance", []string{"banking", "finance", "insurance", "investment", "nbfc"}},
			{"retail", []string{"retail", "shop", "store", "mall", "e-commerce"}},
			{"transport", []string{"transport", "logistics", "shipping", "delivery", "courier"}},
		},
		IncomeRanges: []Entry{
			{"0-5L", []string{"up to", "below 5 lakh", "less than 5 lakh", "upto 5 lakh",
				"not exceeding 5 lakh", "2.5 lakh", "3 lakh", "5 lakh"}},
			{"5-10L", []string{"5 lakh to 10 lakh", "7 lakh", "7.5 lakh", "10 lakh",
				"between 5 and 10 lakh", "above 5 lakh", "exceeding 5 lakh"}},
			{"10-15L", []string{"10 lakh to 15 lakh", "12 lakh", "12.5 lakh", "15 lakh",
				"between 10 and 15 lakh", "above 10 lakh"}},
			{"15L+", []string{"above 15 lakh", "exceeding 15 lakh", "20 lakh", "50 lakh", "1 crore",
				"more than 15 lakh", "super rich", "high income"}},
		},
		Hierarchy: map[string]model.Topic{
			"tax":            {Main: "Taxation", Sub: "Tax Policy"},
			"income_tax":     {Main: "Taxation", Sub: "Income Tax", Section: "Personal Tax"},
			"gst":            {Main: "Taxation", Sub: "GST"},
			"healthcare":     {Main: "Social Welfare", Sub: "Healthcare"},
			"education":      {Main: "Social Welfare", Sub: "Education"},
			"defense":        {Main: "National Security", Sub: "Defense"},
			"agriculture":    {Main: "Economic Development", Sub: "Agriculture"},
			"infrastructure": {Main: "Economic Development", Sub: "Infrastructure"},
			"employment":     {Main: "Economic Development", Sub: "Employment"},
			"finance":        {Main: "Economic Policy", Sub: "Finance"},
			"social_welfare": {Main: "Social Welfare", Sub: "General Welfare"},
			"energy":         {Main: "Economic Development", Sub: "Energy"},
			"digital":        {Main: "Technology", Sub: "Digital Infrastructure"},
			"msme":           {Main: "Economic Development", Sub: "MSME"},
		},
	}
}
