package internal

type CodeType string

const (
	CodeTypeSupplier  CodeType = "仕入先"
	CodeTypeConsignee CodeType = "荷受人"
)

const (
	ColSupplierCode   = "仕入先コード"
	ColConsigneeCode  = "荷受人コード"
	ColSupplierPostal = "仕入先郵便番号"
	ColPostal         = "郵便番号"
	ColQuantity       = "分析用単位数量"
	ColCodeType       = "コード種別"
	ColCode           = "コード"
	ColFailReason     = "失敗理由"
	ColLat            = "緯度"
	ColLon            = "経度"
	ColGeoPostal      = "postal_cd"
	ColGeoLon         = "longitude"
	ColGeoLat         = "latitude"
	ColSupplierLat    = "仕入先_緯度"
	ColSupplierLon    = "仕入先_経度"
	ColConsigneeLat   = "荷受人_緯度"
	ColConsigneeLon   = "荷受人_経度"
	ColDistanceKm     = "距離_km"
	ColCO2Grams       = "CO2排出量_g"
)

const GeocodeFailureReason = "Geocodeデータに該当する有効な郵便番号が見つかりませんでした"

type CodeRecord struct {
	Type CodeType
	Code string
}

type LinkedCode struct {
	Type       CodeType
	Code       string
	PostalCode string
}

type GeoPoint struct {
	Lat float64
	Lon float64
}

type GeocodedCode struct {
	Type       CodeType
	Code       string
	PostalCode string
	Point      GeoPoint
}

type GeocodeFailure struct {
	Type       CodeType
	Code       string
	PostalCode string
	Reason     string
}

type RunRow struct {
	ID         int
	TraceID    string
	Stage      string
	Status     string
	Counts     map[string]int
	DurationMs float64
	Transcript string
	CreatedAt  string
}
