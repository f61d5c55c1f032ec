package base

import (
	"time"
)

type MQTTTopic struct {
	Topic    string
	Qos      int
	Retained bool
}

type MQTT struct {
	WhiteList    MQTTTopic
	NonWhiteList MQTTTopic
	Broker       string
	Clientid     string
	Username     string
	Password     string
}

type HttpServer struct {
	ServerAddr     string // in the form "host:port"
	Method         string
	HealthCheckURI string // no default: NewConfig leaves it empty
	WhiteListURI   string
}

type LOG struct {
	LogToFile bool
	Format    string // json, text
	LogLevel  string // panic, fatal, error, warn warning, info, debug, trace
}

type PProf struct {
	Addr    string
	Timeout time.Duration
}

type TEST struct {
	TestMode        bool
	EnableWhiteList bool
	PProf           `json:"PProf"`
}

type UdpServer struct {
	Host          string
	NumLoops      int
	IdleTime      time.Duration
	MetricsServer string
}

type Filter struct {
	IsFilterFrame    bool
	FilterInterval   int
	ResetMapInterval int
}

// DBC configures where the bridge loads its CAN network description from.
type DBC struct {
	EmbedDBC bool // true: load the compiled-in can.dbc, false: read DBCPath from disk (DBCExcel is not read by the bridge)
	DBCPath  string
	DBCExcel string
}

type Config struct {
	MQTT                  `json:"MQTT"`
	HttpServer            `json:"HttpServer"`
	DataChanSize          uint
	WorkRoutines          int
	DecodeUdpRoutines     int
	DBC                   `json:"DBC"`
	WhiteListFile         string
	LOG                   `json:"LOG"`
	Filter                `json:"Filter"`
	Bidirection           bool
	CalcFrameRate         bool
	CalcFrameRateInterval int
	TEST                  `json:"TEST"`
	UdpServer             `json:"UdpServer"`
	SpecialCANs           []int
}

func NewConfig() *Config {
	return &Config{
		MQTT{},
		HttpServer{},
		10000,
		10,
		10,
		DBC{true, "./can.dbc", "./can.xlsx"},
		"./whitelist.json",
		LOG{false, "text", "info"},
		Filter{true, 10, 600000},
		false,
		true,
		5,
		TEST{},
		UdpServer{},
		[]int{},
	}
}

var GConfig = NewConfig()
