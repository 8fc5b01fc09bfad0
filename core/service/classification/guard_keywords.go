package classification

import "guard_server/core/domain"

// DefaultKeywordTables returns the built-in keyword sets, all lower case.
// The score for a category is hits/len(keywords), so longer tables make a
// single hit weigh less.
func DefaultKeywordTables() map[domain.Category][]string {
	return map[domain.Category][]string{
		domain.CategoryMisinformation: {
			"miracle cure",
			"100%",
			"guaranteed",
			"urgent",
			"hoax",
			"they don't want you to know",
			"fake news",
			"cover-up",
			"doctors hate",
			"share before",
			"wake up",
			"secret cure",
		},
		domain.CategoryViolence: {
			"kill",
			"murder",
			"shoot",
			"stab",
			"attack",
			"bomb",
			"blood",
			"assault",
			"massacre",
			"gun",
			"weapon",
			"beat up",
			"torture",
			"terror",
		},
		domain.CategorySexual: {
			"sex",
			"nude",
			"naked",
			"porn",
			"xxx",
			"explicit",
			"onlyfans",
			"nsfw",
			"erotic",
			"hookup",
		},
		domain.CategoryPolitics: {
			"election",
			"vote",
			"president",
			"congress",
			"senate",
			"democrat",
			"republican",
			"parliament",
			"campaign",
			"politician",
			"government",
			"policy",
		},
		domain.CategoryFamilyRestricted: {
			"gambling",
			"casino",
			"alcohol",
			"drunk",
			"drugs",
			"cocaine",
			"cigarette",
			"vaping",
			"betting",
			"booze",
			"f*ck",
			"wtf",
		},
	}
}
