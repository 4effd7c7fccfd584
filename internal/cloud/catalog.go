package cloud

import "strings"

// azureCatalog is the public Azure region list, government clouds included.
var azureCatalog = []string{
	"eastus", "eastus2", "southcentralus", "westus2", "westus3", "australiaeast",
	"southeastasia", "northeurope", "swedencentral", "uksouth", "westeurope",
	"centralus", "southafricanorth", "centralindia", "eastasia", "japaneast",
	"koreacentral", "canadacentral", "francecentral", "germanywestcentral",
	"italynorth", "norwayeast", "polandcentral", "switzerlandnorth",
	"uaenorth", "brazilsouth", "israelcentral", "qatarcentral",
	"northcentralus", "westus", "japanwest", "westcentralus", "southafricawest",
	"australiacentral", "australiacentral2", "australiasoutheast", "koreasouth",
	"southindia", "westindia", "canadaeast", "francesouth", "germanynorth",
	"norwaywest", "switzerlandwest", "ukwest", "uaecentral", "brazilsoutheast",
	"usgovvirginia", "usgovarizona", "usgovtexas", "usgoviowa",
	"usdodeast", "usdodcentral",
}

// AzureRegions lists Azure region codes without government-cloud entries.
func AzureRegions() []string {
	out := make([]string, 0, len(azureCatalog))
	for _, code := range azureCatalog {
		if isAzureGovernment(code) {
			continue
		}
		out = append(out, code)
	}
	return out
}

func isAzureGovernment(code string) bool {
	return strings.HasPrefix(code, "usgov") || strings.HasPrefix(code, "usdod")
}
