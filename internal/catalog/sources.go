package catalog

// Target-table bindings for the CMS source families. The three MUE variants
// share one target table; NCCI PTP is the only multi-part source because CMS
// publishes each quarter as several files per code range.

func init() {
	Register(TableConfig{
		SourceCode: "PFS_RVU",
		Table:      "cms.pfs_rvu",
		UniqueKeys: []string{"hcpcs_code", "modifier"},
		Columns: []string{
			"hcpcs_code", "modifier", "description", "status_code",
			"work_rvu", "non_fac_pe_rvu", "facility_pe_rvu", "mp_rvu",
			"non_fac_total", "facility_total", "pctc_indicator",
			"global_days", "conversion_factor",
		},
	})
	Register(TableConfig{
		SourceCode: "PFS_GPCI",
		Table:      "cms.pfs_gpci",
		UniqueKeys: []string{"mac_locality"},
		Columns:    []string{"mac_locality", "locality_name", "work_gpci", "pe_gpci", "mp_gpci"},
	})
	Register(TableConfig{
		SourceCode: "PFS_LOCALITY",
		Table:      "cms.pfs_locality",
		UniqueKeys: []string{"state_code", "county_code", "carrier_number", "locality_code"},
		Columns: []string{
			"state_code", "county_code", "county_name",
			"carrier_number", "locality_code", "mac_locality",
		},
	})
	Register(TableConfig{
		SourceCode: "PFS_ANES_CF",
		Table:      "cms.pfs_anes_cf",
		UniqueKeys: []string{"mac_locality"},
		Columns:    []string{"mac_locality", "locality_name", "anes_conversion_factor"},
	})
	Register(TableConfig{
		SourceCode: "PFS_OPPS_CAP",
		Table:      "cms.pfs_opps_cap",
		UniqueKeys: []string{"hcpcs_code"},
		Columns:    []string{"hcpcs_code", "opps_cap_amount"},
	})
	Register(TableConfig{
		SourceCode: "HCPCS",
		Table:      "cms.hcpcs_codes",
		UniqueKeys: []string{"hcpcs_code"},
		Columns: []string{
			"hcpcs_code", "short_description", "long_description",
			"add_date", "effective_date", "termination_date",
			"betos_code", "coverage_code",
		},
	})
	Register(TableConfig{
		SourceCode: "NCCI_PTP",
		Table:      "cms.ncci_ptp",
		UniqueKeys: []string{"comprehensive_code", "component_code"},
		Columns: []string{
			"comprehensive_code", "component_code", "modifier_indicator",
			"effective_date", "deletion_date", "rationale", "prior_1996_flag",
		},
		MultiPart: true,
		Variants:  []string{"HOSPITAL", "PRACTITIONER"},
	})

	mueColumns := []string{"hcpcs_code", "mue_value", "mue_rationale", "mai_id", "mai_description"}
	for _, code := range []string{"NCCI_MUE_DME", "NCCI_MUE_PRAC", "NCCI_MUE_OPH"} {
		Register(TableConfig{
			SourceCode: code,
			Table:      "cms.ncci_mue",
			UniqueKeys: []string{"hcpcs_code"},
			Columns:    mueColumns,
		})
	}
}
