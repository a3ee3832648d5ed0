package schema

// Column names as they appear in the telco customer extract and in the
// engineered feature table.
const (
	ColCustomerID       = "customerID"
	ColGender           = "gender"
	ColSeniorCitizen    = "SeniorCitizen"
	ColPartner          = "Partner"
	ColDependents       = "Dependents"
	ColTenure           = "tenure"
	ColPhoneService     = "PhoneService"
	ColMultipleLines    = "MultipleLines"
	ColInternetService  = "InternetService"
	ColOnlineSecurity   = "OnlineSecurity"
	ColOnlineBackup     = "OnlineBackup"
	ColDeviceProtection = "DeviceProtection"
	ColTechSupport      = "TechSupport"
	ColStreamingTV      = "StreamingTV"
	ColStreamingMovies  = "StreamingMovies"
	ColContract         = "Contract"
	ColPaperlessBilling = "PaperlessBilling"
	ColPaymentMethod    = "PaymentMethod"
	ColMonthlyCharges   = "MonthlyCharges"
	ColTotalCharges     = "TotalCharges"

	ColChurn     = "Churn"
	ColChurnFlag = "ChurnFlag"

	ColTenureBucket       = "TenureBucket"
	ColIsMonthToMonth     = "IsMonthToMonth"
	ColIsElectronicCheck  = "IsElectronicCheck"
	ColIsPaperlessBilling = "IsPaperlessBilling"
	ColHasInternet        = "HasInternet"
	ColHasFiber           = "HasFiber"
	ColAddonCount         = "AddonCount"
	ColTenureSafe         = "TenureSafe"
	ColAvgMonthlyCharge   = "AvgMonthlyCharge_fromTotal"
	ColAnnualizedRevenue  = "AnnualizedRevenue"
)

// Categorical values the feature builder keys on.
const (
	Yes             = "Yes"
	No              = "No"
	MonthToMonth    = "Month-to-month"
	ElectronicCheck = "Electronic check"
	FiberOptic      = "Fiber optic"
	NoInternet      = "No"
)

// AddOns lists the optional internet add-on services in feature order.
var AddOns = []string{
	ColOnlineSecurity,
	ColOnlineBackup,
	ColDeviceProtection,
	ColTechSupport,
	ColStreamingTV,
	ColStreamingMovies,
}

// AddOnIndicator names the 0/1 column derived from an add-on service column.
func AddOnIndicator(addOn string) string {
	return addOn + "_Yes"
}

// TenureBuckets are the ordered bucket labels.
var TenureBuckets = []string{"0", "1-12", "13-24", "25-36", "37-48", "49-60", "60+"}

// TenureEdges are the bucket boundaries; bucket i covers (edge[i], edge[i+1]].
var TenureEdges = []float64{-1, 0, 12, 24, 36, 48, 60, 120}

var (
	yesNo           = []string{Yes, No}
	addOnValues     = []string{Yes, No, "No internet service"}
	multipleLines   = []string{Yes, No, "No phone service"}
	contracts       = []string{MonthToMonth, "One year", "Two year"}
	internetService = []string{"DSL", FiberOptic, NoInternet}
	paymentMethods  = []string{
		ElectronicCheck,
		"Mailed check",
		"Bank transfer (automatic)",
		"Credit card (automatic)",
	}
	genders = []string{"Female", "Male"}
)
