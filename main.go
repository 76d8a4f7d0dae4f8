package main

import (
	"log"
	"os"
)

func main() {
	log.Println("Starting NexBlue Bridge...")
	GetConfig().ReadConfig()
	GetDB().Connect()
	GetDB().InitDBStructure()
	NexBlueAPIInstance = NewNexBlueAPI()
	DataCoordinatorInstance = NewDataCoordinator(GetNexBlueAPI())
	DataCoordinatorInstance.InitPeriodicRefresh()
	InitMetrics()
	InitHTTPRouter()
	ServeHTTP()
	os.Exit(0)
}
