package balena

const (
	ProductionAPIURL     = "https://api.balena-cloud.com"
	ProductionActionsURL = "https://actions.balena-devices.com"
	StagingAPIURL        = "https://api.balena-staging.com"
	StagingActionsURL    = "https://actions.balena-staging-devices.com"
)

type apiPath = string

const (
	pathWhoami  apiPath = "/actor/v1/whoami"
	pathDevice  apiPath = "/v6/device"
	pathRelease apiPath = "/v6/release"
)

// actionsVersion is the version of the actions service used for host OS
// updates.
const actionsVersion = "v2"

// hupAction is the actions service action that performs a host OS update.
const hupAction = "resinhup"

type releaseStatus = string

const (
	releaseStatusSuccess releaseStatus = "success"
)

// Endpoints returns the API and actions service base URLs for the selected
// environment.
func Endpoints(staging bool) (api string, actions string) {
	if staging {
		return StagingAPIURL, StagingActionsURL
	}
	return ProductionAPIURL, ProductionActionsURL
}
