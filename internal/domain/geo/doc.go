// Package geo holds the geodesy used by the anchor watch.
//
// Coordinates are plain WGS84 degrees. Distances use the haversine formula on
// a spherical earth, which stays well under a meter of error at anchorage
// scales (tens to a few hundred meters).
package geo
