package textclean

import (
	"regexp"
	"strings"
)

var usStates = map[string]string{
	"alabama": "Alabama", "alaska": "Alaska", "arizona": "Arizona", "arkansas": "Arkansas",
	"california": "California", "colorado": "Colorado", "connecticut": "Connecticut",
	"delaware": "Delaware", "florida": "Florida", "georgia": "Georgia", "hawaii": "Hawaii",
	"idaho": "Idaho", "illinois": "Illinois", "indiana": "Indiana", "iowa": "Iowa",
	"kansas": "Kansas", "kentucky": "Kentucky", "louisiana": "Louisiana", "maine": "Maine",
	"maryland": "Maryland", "massachusetts": "Massachusetts", "michigan": "Michigan",
	"minnesota": "Minnesota", "mississippi": "Mississippi", "missouri": "Missouri",
	"montana": "Montana", "nebraska": "Nebraska", "nevada": "Nevada",
	"new hampshire": "New Hampshire", "new jersey": "New Jersey", "new mexico": "New Mexico",
	"new york": "New York", "north carolina": "North Carolina", "north dakota": "North Dakota",
	"ohio": "Ohio", "oklahoma": "Oklahoma", "oregon": "Oregon", "pennsylvania": "Pennsylvania",
	"rhode island": "Rhode Island", "south carolina": "South Carolina",
	"south dakota": "South Dakota", "tennessee": "Tennessee", "texas": "Texas", "utah": "Utah",
	"vermont": "Vermont", "virginia": "Virginia", "washington": "Washington",
	"west virginia": "West Virginia", "wisconsin": "Wisconsin", "wyoming": "Wyoming",
}

var stateAbbrevs = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire",
	"NJ": "New Jersey", "NM": "New Mexico", "NY": "New York", "NC": "North Carolina",
	"ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania",
	"RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee",
	"TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia", "WA": "Washington",
	"WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

var countriesAndRegions = []string{
	"United States", "Canada", "Mexico", "United Kingdom", "Ireland", "France", "Germany",
	"Spain", "Italy", "Netherlands", "Belgium", "Switzerland", "Austria", "Sweden", "Norway",
	"Denmark", "Finland", "Poland", "Australia", "New Zealand", "Japan", "China", "India",
	"Brazil", "South Africa", "Kenya", "Nigeria",
	"Europe", "European Union", "North America", "South America", "Latin America", "Africa",
	"Asia", "Southeast Asia", "Middle East", "Oceania",
}

var specialEligibility = []string{
	"Nationwide", "Global", "Worldwide", "International", "Statewide", "Regional", "Local",
}

var abbrevTokenRe = regexp.MustCompile(`\b[A-Z]{2}\b`)

// ExtractLocationEligibility matches text against known US states (names and
// abbreviations), countries, regions, and special eligibility terms. Results
// are de-duplicated case-insensitively, in match order.
func ExtractLocationEligibility(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	seen := make(map[string]struct{})
	add := func(name string) {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}

	for _, term := range specialEligibility {
		if containsWord(lower, strings.ToLower(term)) {
			add(term)
		}
	}
	for key, name := range usStates {
		if containsWord(lower, key) {
			add(name)
		}
	}
	for _, token := range abbrevTokenRe.FindAllString(text, -1) {
		if name, ok := stateAbbrevs[token]; ok {
			add(name)
		}
	}
	for _, name := range countriesAndRegions {
		if containsWord(lower, strings.ToLower(name)) {
			add(name)
		}
	}
	return out
}

// containsWord reports whether needle appears in haystack on word boundaries.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
