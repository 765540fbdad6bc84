package generation

import (
	"math/rand/v2"
)

// Attributes are the visual traits a character keeps across every image
type Attributes struct {
	ProfileType string `json:"profile_type,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Ethnicity   string `json:"ethnicity"`
	HairColor   string `json:"hair_color"`
	HairStyle   string `json:"hair_style"`
	EyeColor    string `json:"eye_color"`
	BodyType    string `json:"body_type"`
	AgeRange    string `json:"age_range"`
	Style       string `json:"style"`
}

type weighted struct {
	value  string
	weight int
}

var (
	ethnicities = []weighted{
		{"caucasian", 30}, {"east asian", 15}, {"latina", 15}, {"black", 12},
		{"south asian", 10}, {"middle eastern", 8}, {"southeast asian", 6}, {"mixed", 4},
	}
	hairColors = []weighted{
		{"brown", 30}, {"black", 25}, {"blonde", 20}, {"auburn", 8},
		{"red", 6}, {"platinum", 5}, {"pastel pink", 3}, {"silver", 3},
	}
	femaleHairStyles = []weighted{
		{"long straight", 25}, {"long wavy", 25}, {"shoulder-length bob", 15}, {"high ponytail", 10},
		{"messy bun", 10}, {"braids", 8}, {"pixie cut", 4}, {"curly afro", 3},
	}
	maleHairStyles = []weighted{
		{"short fade", 30}, {"textured crop", 20}, {"slicked back", 15}, {"buzz cut", 10},
		{"medium wavy", 10}, {"man bun", 6}, {"curly top", 6}, {"long straight", 3},
	}
	eyeColors = []weighted{
		{"brown", 45}, {"hazel", 18}, {"blue", 17}, {"green", 12}, {"grey", 5}, {"amber", 3},
	}
	bodyTypes = []weighted{
		{"slim", 30}, {"athletic", 30}, {"average", 20}, {"curvy", 12}, {"muscular", 8},
	}
	ageRanges = []weighted{
		{"early 20s", 35}, {"mid 20s", 35}, {"late 20s", 20}, {"early 30s", 10},
	}
	styles = []weighted{
		{"casual chic", 25}, {"streetwear", 20}, {"minimalist", 15}, {"bohemian", 12},
		{"sporty", 12}, {"elegant", 10}, {"edgy", 6},
	}
)

// styleByProfile nudges the outfit style toward the profile type
var styleByProfile = map[string]string{
	"fitness": "sporty",
	"fashion": "elegant",
	"gaming":  "streetwear",
}

// DrawAttributes picks a fresh set of traits from the weighted tables
func DrawAttributes(rng *rand.Rand, profileType, gender string) Attributes {
	hair := femaleHairStyles
	if gender == "male" {
		hair = maleHairStyles
	}

	a := Attributes{
		ProfileType: profileType,
		Gender:      gender,
		Ethnicity:   drawWeighted(rng, ethnicities),
		HairColor:   drawWeighted(rng, hairColors),
		HairStyle:   drawWeighted(rng, hair),
		EyeColor:    drawWeighted(rng, eyeColors),
		BodyType:    drawWeighted(rng, bodyTypes),
		AgeRange:    drawWeighted(rng, ageRanges),
		Style:       drawWeighted(rng, styles),
	}
	// Half the time the profile type decides the style
	if s, ok := styleByProfile[profileType]; ok && rng.IntN(2) == 0 {
		a.Style = s
	}
	return a
}

func drawWeighted(rng *rand.Rand, table []weighted) string {
	total := 0
	for _, w := range table {
		total += w.weight
	}
	n := rng.IntN(total)
	for _, w := range table {
		if n < w.weight {
			return w.value
		}
		n -= w.weight
	}
	return table[len(table)-1].value
}
