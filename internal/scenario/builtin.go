package scenario

// Expected returns the scenarios of the built-in "expected" module: the
// reference normal/tumor pair run with fixed-point output.
func Expected() []Scenario {
	return []Scenario{{
		Name:     "expected1",
		Normal:   "n.bam",
		Tumor:    "t.bam",
		Expected: "expected.out",
		Params: Params{
			Fixed:        true,
			MinMapQual:   1,
			NormalPurity: 1,
			TumorPurity:  0.76,
		},
	}}
}
