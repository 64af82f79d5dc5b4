package appidentityassets

import _ "embed"

// YAML mirrors `.fulmen/app.yaml` so an installed binary can resolve its
// identity without a checkout next to it.
//
//go:embed app.yaml
var YAML []byte
