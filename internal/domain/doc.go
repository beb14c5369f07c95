// Package domain models the local alert level derived from weather warnings
// and Emergency Operations Center (EOC) status.
//
// # Inputs
//
// Two snapshot types feed the classifier, each replaced wholesale on every
// poll (never merged incrementally):
//
//   - WeatherSnapshot: active weather warnings keyed by a feed-assigned ID.
//     Severity follows the CAP four-level scale (minor, moderate, severe,
//     extreme) plus "unknown" when the feed omits it.
//   - EOCSnapshot: one EOCSiteState per monitored site. EOC activation states
//     follow the Queensland disaster-management ladder: "alert" (monitoring),
//     "lean forward" (preparing to activate), "stand up" (fully activated),
//     "stand down" (deactivating), or "inactive" when no state keyword is
//     published.
//
// # Alert levels
//
// Local alert levels form a fixed total order:
//
//	none < advisory < watch < warning < emergency
//
// Classification walks levels from emergency down to advisory and selects the
// first level whose rule matches. A level's rule combines a weather condition
// set and an EOC condition set with AND or OR (default OR). A condition set
// with no rules never matches, under either operator; an AND combine against
// an empty side therefore masks the other side. That masking is relied on by
// deployed rule tables and is preserved deliberately.
//
// # Reasons
//
// Matched weather conditions contribute one reason per alert, using the event
// string truncated at the first " for " and then " - " (these delimiters
// introduce area lists in BOM warning titles, e.g. "Severe Heatwave Warning
// for the Peninsula..."), de-duplicated and prefixed "Weather: ". Matched EOC
// conditions contribute "LDMG: " plus the upper-cased state of each activated
// site.
package domain
